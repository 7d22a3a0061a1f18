package mocks

//go:generate mockgen -destination=mock_runner.go -package=mocks github.com/censor-ci/censor/pkg/process CommandRunner
//go:generate mockgen -destination=mock_store.go -package=mocks github.com/censor-ci/censor/pkg/store Store,History
