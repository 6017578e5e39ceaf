// Package reflection decides whether a failed step is retried.
package reflection
