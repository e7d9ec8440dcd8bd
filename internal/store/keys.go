package store

import "fmt"

const (
	activeSymbolsKey = "subscribed:symbols"
	realtimeConnsKey = "realtime:connections"
)

func connectionKey(connID string) string {
	return fmt.Sprintf("ws:%s", connID)
}

func ownerConnectionsKey(userID string) string {
	return fmt.Sprintf("user:%s:connections", userID)
}

func mainSymbolKey(connID string) string {
	return fmt.Sprintf("conn:%s:main", connID)
}

func connSymbolsKey(connID string) string {
	return fmt.Sprintf("conn:%s:symbols", connID)
}

func mainSubscribersKey(symbol string) string {
	return fmt.Sprintf("symbol:%s:main", symbol)
}

func subSubscribersKey(symbol string) string {
	return fmt.Sprintf("symbol:%s:sub", symbol)
}

func legacySubscribersKey(symbol string) string {
	return fmt.Sprintf("symbol:%s:subscribers", symbol)
}

func depthKey(symbol string) string {
	return fmt.Sprintf("depth:%s", symbol)
}

func tickerKey(symbol string) string {
	return fmt.Sprintf("ticker:%s", symbol)
}

func activeCandleKey(symbol string) string {
	return fmt.Sprintf("candle:1m:%s", symbol)
}

func closedCandlesKey(symbol string) string {
	return fmt.Sprintf("candle:closed:1m:%s", symbol)
}

func tradesKey(symbol string) string {
	return fmt.Sprintf("trades:%s", symbol)
}
