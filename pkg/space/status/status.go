// Copyright © 2018 One Concern

// Package status declares error constants returned by spaces.
//
// NOTE: such constants are located in a separate package to avoid
// creating undue cyclical dependencies between pkg/space and one
// of its implementations.
package status

import "github.com/oneconcern/gibsync/pkg/errors"

var (
	// ErrNotExists indicates that the fetched record does not exist in the space
	ErrNotExists = errors.New("record doesn't exist")

	// ErrNotSupported indicates that the space does not support this command
	ErrNotSupported = errors.New("not supported")

	// ErrInvalidNode indicates a node whose content hash doesn't match its content
	ErrInvalidNode = errors.New("invalid node")

	// ErrInvalidBinary indicates binary data whose hash doesn't match the claimed hash
	ErrInvalidBinary = errors.New("invalid binary data")

	// ErrThroughputExceeded indicates that the remote store kept refusing requests for capacity reasons
	ErrThroughputExceeded = errors.New("throughput exceeded")

	// ErrUnprocessed indicates that the remote store kept leaving items unprocessed
	ErrUnprocessed = errors.New("unprocessed items remaining")

	// ErrUnauthorized indicates that you don't provided correct credentials to the API
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates that the backend API forbids access to the target resource
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidResource indicates that the storage resource has an invalid name
	ErrInvalidResource = errors.New("invalid storage resource name")

	// ErrStorageAPI indicates any other storage API error
	ErrStorageAPI = errors.New("storage API error")

	// ErrUnresolvedLatest indicates the registry could not decide which node is the latest
	ErrUnresolvedLatest = errors.New("unresolved latest")

	// ErrCycle indicates a relation chain that loops on itself
	ErrCycle = errors.New("cycle in relation chain")
)
