package logfields

import "go.uber.org/zap"

func Event(val string) zap.Field {
	return zap.String("event", val)
}

func Trigger(val string) zap.Field {
	return zap.String("trigger", val)
}

func Store(val string) zap.Field {
	return zap.String("store", val)
}
