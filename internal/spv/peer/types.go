package peer

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=peer_test

type (
	Metrics interface {
		ObserveConnected(n int)
		ObserveDisconnect()
	}
)
