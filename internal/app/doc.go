// Package app composes the lottery into a running application.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/lottery/     # Lottery data types (pure data)
//	├── events/             # Notification bus and Redis publisher
//	├── storage/            # LotteryStore interface
//	│   ├── memory/         # In-memory implementation for tests and dev
//	│   └── postgres/       # PostgreSQL implementation
//	├── services/
//	│   ├── lottery/        # Round state machine and settlement
//	│   ├── vrf/            # Randomness coordinators
//	│   └── automation/     # Upkeep keeper
//	├── httpapi/            # HTTP API and websocket stream
//	├── runtime/            # Config wiring and HTTP server lifecycle
//	├── system/             # Lifecycle management
//	└── metrics/            # Prometheus collectors
//
// # Dependency Direction
//
//	cmd/lotteryd/
//	      │
//	      ▼
//	internal/app/runtime ──► internal/app/httpapi, internal/platform/migrations
//	      │
//	      ▼
//	internal/app/ (composition)
//	      │
//	      └──► internal/app/services/...
//	                  │
//	                  └──► internal/app/storage, internal/app/events
package app
