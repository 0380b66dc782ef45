package blobstore

import "context"

// Store is the narrow contract over binary artifact storage. The core never
// inspects blob contents; it only moves references around.
type Store interface {
	Upload(ctx context.Context, data []byte, destination string) (ref string, err error)
	Download(ctx context.Context, ref string) ([]byte, error)
	Copy(ctx context.Context, ref, destination string) (newRef string, err error)
	Delete(ctx context.Context, ref string) error
}
