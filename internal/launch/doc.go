// Package launch builds the runtime command line of an installed descriptor.
//
// Argument templates carry ${placeholder} tokens. Each placeholder resolves
// to an explicit override when the caller supplies one and to a computed
// default otherwise; unknown placeholders are left untouched.
package launch
