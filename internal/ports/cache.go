package ports

import "time"

// Cache is a TTL key-value store. It bounds the external call rate of the
// placement sequence and carries the advisory idempotency flags for
// side-effecting exchange calls. Entries expire; the cache is best-effort and
// never a distributed lock.
type Cache interface {
	// Get returns the stored value and whether a live entry exists.
	Get(key string) (interface{}, bool)
	// Set stores a value for the given TTL.
	Set(key string, value interface{}, ttl time.Duration)
	// Delete removes an entry.
	Delete(key string)
}

// Cache TTL tiers, mirroring how often each kind of exchange data goes stale.
const (
	TickerTTL      = 2 * time.Second
	IdempotencyTTL = 3 * time.Minute
	BalanceTTL     = 30 * time.Minute
	ContractsTTL   = time.Hour
	ChannelsTTL    = 24 * time.Hour
	ReplyTTL       = 30 * time.Minute // reply-correlated channel grammars
)

// Cache key builders. All keys live in one namespace; building them in one
// place keeps two call sites from minting the same key for different data.
func ChannelsKey() string                     { return "channels.all" }
func LimitsKey(exchange, sym string) string   { return exchange + "." + sym + ".limits" }
func PriceKey(exchange, sym string) string    { return exchange + "." + sym + ".price" }
func BalanceKey(exchange string) string       { return exchange + ".balance" }
func LeverageKey(exchange, sym string) string { return exchange + "." + sym + ".l" }
func StopLossKey(exchange, sym string) string { return exchange + "." + sym + ".sl" }
func ContractsKey(exchange string) string     { return exchange + ".contracts" }
func PositionKey(exchange, sym string) string { return exchange + "." + sym + ".position" }
func ReplyKey(channel, msgID string) string   { return channel + ".messages." + msgID }
