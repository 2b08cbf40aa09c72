// Package identity implements C7: per-process node identity and the
// shared random-tag scheme used both for node ids and pool ids.
package identity

import (
	"crypto/rand"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/crypto/sha3"
)

const tagLength = 5

const tagAlphabet = "abcdefghijklmnopqrstuvwxyz"

// Node is a process's identity for the life of its governor: a stable
// id and the concurrency budget it advertises.
type Node struct {
	NodeID             string
	MaxConcurrentTasks int
}

// New builds a Node identity. A maxConcurrentTasks of 0 or less falls
// back to DefaultMaxConcurrentTasks.
func New(maxConcurrentTasks int) (*Node, error) {
	if maxConcurrentTasks <= 0 {
		maxConcurrentTasks = DefaultMaxConcurrentTasks()
	}
	tag, err := RandomTag()
	if err != nil {
		return nil, fmt.Errorf("identity: generating node tag: %w", err)
	}
	return &Node{
		NodeID:             fmt.Sprintf("%d:%s", os.Getpid(), tag),
		MaxConcurrentTasks: maxConcurrentTasks,
	}, nil
}

// DefaultMaxConcurrentTasks returns the count of usable CPUs, honoring
// whatever GOMAXPROCS has been set to (main wires go.uber.org/automaxprocs
// ahead of this call so a container's CPU quota is respected).
func DefaultMaxConcurrentTasks() int {
	return runtime.GOMAXPROCS(0)
}

// RandomTag produces the 5-lowercase-letter tag used by both node ids
// ("<pid>:<tag>") and pool ids. Rather than math/rand, the tag is
// derived from a cryptographically random seed hashed with SHA3-256 so
// the byte stream feeding the alphabet lookup has no predictable
// structure, following the hashing style of the teacher's own
// content-addressing code.
func RandomTag() (string, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return "", fmt.Errorf("identity: reading random seed: %w", err)
	}
	digest := sha3.Sum256(seed)

	out := make([]byte, tagLength)
	for i := range out {
		out[i] = tagAlphabet[int(digest[i])%len(tagAlphabet)]
	}
	return string(out), nil
}
