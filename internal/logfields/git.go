package logfields

import "go.uber.org/zap"

func Repository(val string) zap.Field {
	return zap.String("git.repository", val)
}

func Branch(val string) zap.Field {
	return zap.String("git.branch", val)
}

func Commit(val string) zap.Field {
	return zap.String("git.commit", val)
}

func ReleaseTag(val string) zap.Field {
	return zap.String("github.release_tag", val)
}
