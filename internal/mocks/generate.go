// Package mocks provides gomock implementations of the pipeline's collaborator
// interfaces.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	quoter := mocks.NewMockQuoter(ctrl)
//	quoter.EXPECT().Quote(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
package mocks

// Quoter: Quote
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=quoter_mock.go rateshop-backend/internal/rating Quoter

// Sink: Append
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=sink_mock.go rateshop-backend/internal/persister Sink
