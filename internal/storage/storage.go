// Package storage keeps uploaded image bytes. Photo and profile records
// only hold the key returned here.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrObjectNotFound = errors.New("image not found")

type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// ProfileKey names a profile photo: profiles/profile_<user id>_<hex8>.<ext>
func ProfileKey(userID uuid.UUID, ext string) string {
	return fmt.Sprintf("profiles/profile_%s_%s.%s", userID, shortID(), ext)
}

// GroupKey names a group photo: groups/group_<YYYYmmdd_HHMMSS>_<hex8>.<ext>
func GroupKey(uploadedAt time.Time, ext string) string {
	return fmt.Sprintf("groups/group_%s_%s.%s", uploadedAt.UTC().Format("20060102_150405"), shortID(), ext)
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, `\`) {
		return fmt.Errorf("invalid object key %q", key)
	}
	return nil
}
