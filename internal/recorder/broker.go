package recorder

import "context"

// StaticBroker is a fixed-answer permission broker, used where the hosting
// platform has already resolved microphone access out of band (and in
// tests).
type StaticBroker bool

func (b StaticBroker) MicrophoneGranted(ctx context.Context) (bool, error) {
	return bool(b), nil
}
