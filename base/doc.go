/*
Package base provides base utilities for movierec: the seeded random
generator and the quoted csv reader.
*/
package base
