// Package mocks provides mock implementations for testing the jobgather services.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the core ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	finisher := mocks.NewMockFinisher(ctrl)
//	finisher.EXPECT().NotifyJobFinished(gomock.Any(), jobID).Return(nil).Times(1)
package mocks

// ProgressStore: GetByID, IncrementAndReturn, UpdateStatus
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=progress_store_mock.go github.com/interop/jobgather/internal/core ProgressStore

// Finisher: NotifyJobFinished
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=finisher_mock.go github.com/interop/jobgather/internal/core Finisher

// WebhookSink: SendStatusChange
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=webhook_sink_mock.go github.com/interop/jobgather/internal/core WebhookSink

// UnitMappingRepository: Create, GetByCorrelationID, GetByUnit
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=unit_mapping_repository_mock.go github.com/interop/jobgather/internal/core UnitMappingRepository

// Dispatcher: Dispatch
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=dispatcher_mock.go github.com/interop/jobgather/internal/core Dispatcher

// DeliveryGuard: Claim, Complete, Release
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=delivery_guard_mock.go github.com/interop/jobgather/internal/core DeliveryGuard
