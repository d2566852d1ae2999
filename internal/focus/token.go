package focus

import (
	"encoding/hex"
	"fmt"

	"mellium.im/xmpp/jid"
)

// A bridge replies to whatever address a request came from, so the from
// of a COLIBRI request must be a local address that still identifies the
// room. The room node is hex-encoded into the resource of the room's
// host: myroom@conference.example.com becomes
// conference.example.com/6d79726f6f6d.

// EncodeRoomAddr returns the focus-local reply address for a room.
func EncodeRoomAddr(room jid.JID) (jid.JID, error) {
	token := hex.EncodeToString([]byte(room.Localpart()))
	addr, err := jid.New("", room.Domainpart(), token)
	if err != nil {
		return jid.JID{}, fmt.Errorf("encode room address: %w", err)
	}
	return addr, nil
}

// DecodeRoomAddr reverses EncodeRoomAddr, recovering the bare room JID.
func DecodeRoomAddr(addr jid.JID) (jid.JID, error) {
	node, err := hex.DecodeString(addr.Resourcepart())
	if err != nil {
		return jid.JID{}, fmt.Errorf("decode room address %q: %w", addr, err)
	}
	room, err := jid.New(string(node), addr.Domainpart(), "")
	if err != nil {
		return jid.JID{}, fmt.Errorf("decode room address %q: %w", addr, err)
	}
	return room, nil
}
