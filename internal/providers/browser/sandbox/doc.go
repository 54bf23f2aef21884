/*
Package sandbox checks JavaScript that the proxy injects into rendered pages.

Scripts are compiled with goja and then run once inside a VM whose globals
imitate a page (window, document, navigator, location). A script that fails
to parse, throws at top level, or runs past the timeout is rejected before
it can reach a real browser.

	result, err := sandbox.Check(ctx, "intercept.js", script)
	if err != nil {
		return err
	}

The Runtime type is also usable directly when a test needs to inspect the
state a script leaves behind:

	rt, _ := sandbox.New(sandbox.DefaultConfig())
	_, _ = rt.Execute(ctx, stealth)
	v, _ := rt.Eval("navigator.webdriver")
*/
package sandbox
