//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based implementation of the authgate outbox
// store. It supports any database that GORM supports (PostgreSQL, MySQL,
// SQLite, etc.); the host app uses it with SQLite so the child-profile
// outbox survives restarts on a single machine.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - child_drafts: Child profiles queued locally before sign-in
//
// # Usage
//
//	db, _ := gorm.Open(sqlite.Open("authgate.db"), &gorm.Config{})
//	gormstore.AutoMigrate(db)
//	outboxStore := gormstore.NewOutboxStore(db)
package gorm
