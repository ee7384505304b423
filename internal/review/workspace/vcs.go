package workspace

import "context"

// VCS is the version-control tool the workspace is driven with. Every method
// runs inside the working copy at dir and fails with a VCSOperationFailed
// error carrying the tool output.
type VCS interface {
	Clone(ctx context.Context, url, dir string) error
	Pull(ctx context.Context, dir, remote, branch string) error
	Checkout(ctx context.Context, dir, branch string, create bool) error
	// CheckoutPaths restores tracked files to their committed content.
	CheckoutPaths(ctx context.Context, dir string, paths ...string) error
	ApplyPatch(ctx context.Context, dir, patchFile string, ignoreWhitespace bool) error
	AbortApply(ctx context.Context, dir string) error
	Clean(ctx context.Context, dir string, force, directories bool) error
	DeleteBranch(ctx context.Context, dir, branch string, force bool) error
	CurrentBranch(ctx context.Context, dir string) (string, error)
}
