package indexer

import (
	"errors"

	"github.com/xhad/ayurchat/pkg/store"
)

// All of these are fatal: the caller should abort before starting a session.
var (
	ErrSourceUnreadable  = errors.New("source document unreadable")
	ErrEmptySource       = errors.New("source document contains no text")
	ErrPersistUnwritable = errors.New("persist location unwritable")
	ErrEmbedding         = errors.New("embedding service failed")
	ErrEmbedderMismatch  = store.ErrEmbedderMismatch
)
