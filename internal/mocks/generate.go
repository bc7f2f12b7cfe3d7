// Package mocks provides gomock implementations of the report pipeline ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	status := mocks.NewMockStatusClient(ctrl)
//	status.EXPECT().Push(gomock.Any(), gomock.Any()).Return(nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=core_mock.go github.com/target/report-runner/internal/core BoundaryFactory,DeliveryHistoryRepository,EventPublisher,JobLocker,Mailer,ObjectStore,RenderBoundary,SnapshotStore,StatusClient
