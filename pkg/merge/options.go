package merge

import "go.uber.org/zap"

// Defaults of the integration workflow
const (
	DefaultRemote            = "origin"
	DefaultIntegrationBranch = "main"
	DefaultPullRefspec       = "pull/{id}/head"
)

// Option configures a Merger
type Option func(*Merger)

// Logger injects a logging facility
func Logger(l *zap.Logger) Option {
	return func(m *Merger) {
		if l != nil {
			m.l = l
		}
	}
}

// Remote sets the remote hosting pull requests and the integration branch
func Remote(name string) Option {
	return func(m *Merger) {
		if name != "" {
			m.remote = name
		}
	}
}

// IntegrationBranch sets the branch requests are merged into
func IntegrationBranch(name string) Option {
	return func(m *Merger) {
		if name != "" {
			m.integration = name
		}
	}
}

// PullRefspec sets the remote ref of a request. "{id}" is replaced by the request identifier.
func PullRefspec(spec string) Option {
	return func(m *Merger) {
		if spec != "" {
			m.pullRefspec = spec
		}
	}
}
