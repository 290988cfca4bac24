// Package storage provides a key/value interface over the files a run keeps between invocations.
//
// The only backend is the local file system, rooted in the git directory of the repository.
package storage
