// Package coinsig implements remote coin-telephone control signaling:
// coin-deposit tone counting with threshold actions, the EIS wink/MF
// disposition receiver, and the matching disposition signal sender.
package coinsig
