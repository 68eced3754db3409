// Package storage holds the protobuf records persisted by the Badger chat backend.
package storage

//go:generate protoc --go_out=. --go_opt=paths=source_relative storage.proto
