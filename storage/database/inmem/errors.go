package inmemdb

import "github.com/pkg/errors"

var errOffline = errors.New("in-memory store switched offline")
