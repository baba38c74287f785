package executor

var newClientFn = func(cfg ClientConfig) Client { return NewHTTPClient(cfg) }

// SetNewClientFn replaces the default client factory used when Options.Client
// is nil. A nil fn restores the net/http client.
func SetNewClientFn(fn func(ClientConfig) Client) (restore func()) {
	prev := newClientFn
	if fn != nil {
		newClientFn = fn
	} else {
		newClientFn = func(cfg ClientConfig) Client { return NewHTTPClient(cfg) }
	}
	return func() { newClientFn = prev }
}
