package constants

// Server defaults
const (
	DefaultServerPort            = 5000
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultWebhookMaxBodyBytes   = 1 << 20
	ServerErrorChannelSize       = 1
)

// Store defaults
const (
	DefaultStoreDriver           = "sqlite"
	DefaultSQLitePath            = "wamirror.db"
	DefaultMongoDatabase         = "whatsapp"
	DefaultMongoCollection       = "processed_messages"
	DefaultStoreTimeoutMs        = 5000
	DefaultDatabaseRetryAttempts = 3
)

// Retry defaults
const (
	DefaultRetryBackoffMs = 200
	DefaultMaxBackoffMs   = 5000
	DefaultMaxAttempts    = 5
)

// Notifier defaults
const (
	DefaultClientBufferSize  = 64
	DefaultAMQPExchange      = "wamirror.events"
	DefaultPublishTimeoutMs  = 2000
	DefaultNotifierQueueSize = 256
	WebsocketWriteTimeoutSec = 5
)

// Batch ingestion defaults
const (
	DefaultWatchSettleMs = 250
	PayloadFileExtension = ".json"
)

// Outbound message defaults for POST /api/send
const (
	DefaultContactName     = "Unknown"
	GeneratedMessagePrefix = "msg_"
)

// Privacy settings
const (
	DefaultPhoneMaskLength     = 4
	DefaultMessageIDVisibleLen = 6
)

// Validation limits
const (
	MaxMessageIDLength  = 256
	MaxContactIDLength  = 64
	MaxContactNameLen   = 256
	MaxMessageTextBytes = 64 * 1024
)

// Encryption salts for payload encryption at rest
const (
	EncryptionSalt = "wamirror-payload-salt-v1"
)
