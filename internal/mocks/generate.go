// Package mocks provides mock implementations of the quill ports for testing.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the port interfaces.
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockArticleStore(ctrl)
//	store.EXPECT().List(gomock.Any(), article.SortCreatedDesc).Return(records, nil)
package mocks

// Generate mocks for the article ports: List, Get, Insert, Update, Delete on ArticleStore;
// Subscribe on ChangeFeed; Events, Status, Close on Subscription.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=articles_mock.go github.com/target/quill/internal/ports ArticleStore,ChangeFeed,Subscription

// Generate mocks for the auth ports: SignIn, SignUp, SignOut on IdentityProvider;
// GetProfile, CreateProfile on ProfileStore.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=auth_mock.go github.com/target/quill/internal/ports IdentityProvider,ProfileStore
