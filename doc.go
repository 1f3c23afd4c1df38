/*
Package aptpub publishes Debian packages to an S3-hosted APT repository.

aptpub maintains a local working copy of the repository, merges in the
state already published to the bucket, and uploads a freshly signed
repository tree. Features include:
  - Idempotent publishing: re-running with the same packages is a no-op
  - Merge semantics: previously published packages are preserved
  - Force-replace adds: a package with the same pool filename overwrites
    the existing entry
  - PGP verification of the remote repository before importing its state
  - GPG-signed Release/InRelease metadata

The main packages are:

	github.com/aptpub/aptpub/internal/deb      - Debian package and index format handling
	github.com/aptpub/aptpub/internal/repo     - Local repository state
	github.com/aptpub/aptpub/internal/sign     - Repository metadata signing
	github.com/aptpub/aptpub/internal/mirror   - Read-only reflection of the published repository
	github.com/aptpub/aptpub/internal/blob     - S3 object storage client
	github.com/aptpub/aptpub/internal/publish  - Publisher orchestration and configuration
	github.com/aptpub/aptpub/cmd/aptpub        - Command-line interface
*/
package aptpub
