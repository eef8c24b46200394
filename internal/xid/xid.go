package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a record id such as "sale-<uuid v7>". Version 7 ids sort by
// creation time, which keeps history listings stable.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
	}
	return fmt.Sprintf("%s-%s", prefix, id.String())
}
