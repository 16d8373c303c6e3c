//go:build !linux

package identity

import "errors"

var errNoKernelKeyring = errors.New("kernel keyring is only available on Linux")

func StoreKernelKeyring(_ string) error { return errNoKernelKeyring }

func RetrieveKernelKeyring() (string, error) { return "", errNoKernelKeyring }
