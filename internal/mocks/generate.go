// Package mocks provides gomock-generated doubles for the service's ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockPrincipalStore(ctrl)
//	store.EXPECT().GetOrCreate(gomock.Any(), gomock.Any()).Return("principal-1", nil)
package mocks

// Generate mocks for the principal store and access token repository interfaces from internal/ports.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=principal_store_mock.go github.com/ragbox/ragbox/internal/ports PrincipalStore
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=access_token_repository_mock.go github.com/ragbox/ragbox/internal/ports AccessTokenRepository
