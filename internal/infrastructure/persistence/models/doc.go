// Package models contains GORM persistence models for the sync tables.
// Models are kept apart from the domain types in internal/domain/marketsync so
// the domain stays free of ORM tags; each model has ToDomain and FromDomain
// mappers used by the repositories.
//
// Timestamps are written in UTC. SQLite stores them as text and compares them
// lexically, so mixed offsets would break range queries on the queue and the
// event log.
package models
