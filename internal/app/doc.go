// Package app composes the credit engine into a running application.
//
// The app package sits above the domain and service layers and is
// responsible for wiring: picking storage backends, connecting the event
// pipeline to its subscribers, and registering lifecycle-managed services
// with the system manager. It holds no business logic of its own.
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Pure domain models and reductions
//	│   ├── event/          # Typed event log
//	│   ├── score/          # Score derivation and rules
//	│   ├── wallet/         # Currencies, pricing, hash-chained ledger
//	│   ├── badge/          # Scoped badge catalogs and rules
//	│   └── task/           # Task feed and cap guard
//	├── services/           # Stateful services over the domain
//	├── storage/            # Store interfaces + memory, kv, postgres
//	├── httpapi/            # REST + websocket surface
//	├── metrics/            # Prometheus collectors
//	└── system/             # Lifecycle manager
//
// Dependency direction: cmd/creditserver → internal/app → services →
// domain. Domain packages never import services; services never import
// httpapi.
package app
