package inmemdb

import (
	"sync"
	"time"

	"github.com/trezcool/shule/core/auth"
	"github.com/trezcool/shule/core/user"
)

// DB is an in-memory store used by tests and local development. Every
// exported operation is a single atomic step under the table mutex,
// mirroring the persistence contract of the SQL and redis backends.
type DB struct {
	mu sync.RWMutex

	users         map[string]*user.User         // keyed by ID
	otps          map[string]*auth.OTP          // keyed by email
	adminSessions map[string]*auth.AdminSession // keyed by email
	hits          map[string]*hitBucket         // keyed by rate-limit key
}

type hitBucket struct {
	count     int
	expiresAt time.Time
}

func NewDB() *DB {
	return &DB{
		users:         make(map[string]*user.User),
		otps:          make(map[string]*auth.OTP),
		adminSessions: make(map[string]*auth.AdminSession),
		hits:          make(map[string]*hitBucket),
	}
}
