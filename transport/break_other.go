//go:build !linux && !darwin

package transport

func openBreak(name string) (breakLine, error) {
	return nil, ErrBreakUnsupported
}
