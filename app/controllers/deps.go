package controllers

import (
	"github.com/consultix/consultix/internal/pkg/authz"
	"github.com/consultix/consultix/internal/pkg/billing"
	"github.com/consultix/consultix/internal/pkg/entitlements"
	"github.com/consultix/consultix/internal/pkg/ledger"
	"github.com/consultix/consultix/internal/pkg/scheduler"
)

// Deps is the controller-level dependency container, wired once at startup.
type Deps struct {
	Repo       ledger.Repository
	Evaluator  *entitlements.Evaluator
	Meter      *entitlements.Meter
	Engine     *billing.Engine
	Service    *billing.Service
	Reconciler *billing.Reconciler
	Checker    *authz.Checker
	Jobs       *scheduler.Jobs
}

var deps Deps

// Setup installs the shared dependencies for all handlers.
func Setup(d Deps) {
	deps = d
}
