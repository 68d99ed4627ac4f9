//go:build !unix

package core

func interrupted(error) bool { return false }
