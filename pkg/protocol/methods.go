package protocol

// RPC method names.
const (
	MethodConnect = "connect"
	MethodHealth  = "health"
	MethodStatus  = "status"

	MethodConfigGet   = "config.get"
	MethodConfigApply = "config.apply"

	MethodTabsList  = "tabs.list"
	MethodTabsOpen  = "tabs.open"
	MethodTabsClose = "tabs.close"

	MethodPageNavigate = "page.navigate"
	MethodPageSnapshot = "page.snapshot"
	MethodPageClick    = "page.click"
	MethodPageType     = "page.type"
	MethodPageHover    = "page.hover"

	MethodIdentityResolve  = "identity.resolve"
	MethodIdentitySelector = "identity.selector"
	MethodIdentityValid    = "identity.valid"
)
