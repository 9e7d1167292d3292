package common

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cast"
)

const (
	ENABLED  = "enabled"
	DISABLED = "disabled"
)

var (
	snowflakeNode *snowflake.Node
	snowflakeOnce sync.Once
)

// UUIDint64 returns a snowflake-based int64 identifier.
func UUIDint64() int64 {
	snowflakeOnce.Do(func() {
		var err error
		snowflakeNode, err = snowflake.NewNode(1)
		if err != nil {
			panic(err)
		}
	})
	return snowflakeNode.Generate().Int64()
}

// UUID returns the string form of a snowflake identifier.
func UUID() string {
	return cast.ToString(UUIDint64())
}

// GetSecretSalt reads the password salt from the environment, falling back
// to a fixed default for development setups.
func GetSecretSalt() string {
	salt := os.Getenv("ACCSTORE_SECRET_SALT")
	if salt == "" {
		salt = "accstore-dev-salt"
	}
	return salt
}

// Sha256HashWithSalt hashes src with the given salt.
func Sha256HashWithSalt(src, salt string) string {
	h := sha256.New()
	h.Write([]byte(src + salt))
	return hex.EncodeToString(h.Sum(nil))
}

// RandomHex returns n random bytes hex encoded.
func RandomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// fall back to a time-derived value, only reachable if the
		// platform CSPRNG is unavailable
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// RandomCouponCode returns an uppercase 15 character coupon code.
func RandomCouponCode() string {
	const letters = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, 15)
	if _, err := rand.Read(b); err != nil {
		return strings.ToUpper(RandomHex(8))[:15]
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b)
}

// FenToDollar formats integer cents as a dollar string, e.g. 2400 -> "$24".
func FenToDollar(cents int64) string {
	if cents%100 == 0 {
		return fmt.Sprintf("$%d", cents/100)
	}
	return fmt.Sprintf("$%.2f", float64(cents)/100)
}

// IsEmptyOrNA reports whether the value carries no usable content.
func IsEmptyOrNA(val string) bool {
	v := strings.TrimSpace(val)
	return v == "" || strings.EqualFold(v, "N/A")
}
