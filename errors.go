package main

import "errors"

// Error taxonomy (§7). These are scoped to a single frame or a single
// subscription — none of them terminate the process.
var (
	ErrInvalidControl       = errors.New("sdraudio: invalid control message")
	ErrTransportClosed      = errors.New("sdraudio: transport not open")
	ErrBackpressureOverflow = errors.New("sdraudio: outbound buffer over 800kB")
	ErrEncoderFatal         = errors.New("sdraudio: encoder reported a fatal write status")
	ErrPlanCreationFailure  = errors.New("sdraudio: FFT plan allocation failed")
	ErrNumericAnomaly       = errors.New("sdraudio: NaN detected in demodulated output")
	ErrModeSwitchRace       = errors.New("sdraudio: demodulation command ignored, debounce window active")
)
