//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of the
// authgate outbox store. It is designed for deployment on Google Cloud
// Platform and supports multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
// The package uses the following Datastore kinds:
//   - ChildDraft: Child profiles queued locally before sign-in
//
// # Namespacing
//
// The store supports Datastore namespaces for multi-tenant applications.
// Pass a namespace when creating the store to isolate data between tenants:
//
//	outboxStore := gae.NewOutboxStore(client, "tenant-123")
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	outboxStore := gae.NewOutboxStore(client, "") // default namespace
package gae
