package xid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New returns a prefixed identifier whose lexical order follows creation order.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("%s-%020d", prefix, time.Now().UnixNano())
	}
	return prefix + "-" + id.String()
}
