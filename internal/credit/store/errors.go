package store

import "errors"

var errEntryRequired = errors.New("ledger entry is required")
