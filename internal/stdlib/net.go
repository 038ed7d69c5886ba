package stdlib

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/seanpringle/rela/internal/rerr"
	"github.com/seanpringle/rela/internal/value"
	"github.com/seanpringle/rela/internal/vm"
)

// InstallNet registers the "net" native-callback module (net.ws_dial,
// net.ws_send, net.ws_recv, net.ws_close), wrapping a gorilla/websocket
// connection behind a UserData handle, per SPEC_FULL.md's DOMAIN STACK
// table.
func InstallNet(v *vm.VM) {
	lib := v.AllocMap()

	reg := func(name string, fn func(*vm.VM) (int, error)) {
		v.RegisterNative("net."+name, func(raw any) (int, error) {
			return fn(raw.(*vm.VM))
		})
		item, _ := v.CoreGet("net." + name)
		lib.Set(value.String(v.Intern(name)), item)
	}

	reg("ws_dial", wsDial)
	reg("ws_send", wsSend)
	reg("ws_recv", wsRecv)
	reg("ws_close", wsClose)

	v.SetCore("net", value.MapItem(lib))
}

func wsDial(v *vm.VM) (int, error) {
	url, err := asString(v, v.Pick(v.Depth()-1))
	if err != nil {
		return 0, rerr.WrapHost(err, "net.ws_dial")
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return 0, rerr.WrapHost(err, "net.ws_dial: %s", url)
	}

	for v.Depth() > 0 {
		v.Pop()
	}
	handle := v.NewUserdata("ws:"+uuid.NewString(), conn)
	v.Push(value.UserItem(handle))
	return 1, nil
}

func wsHandle(it value.Item) (*websocket.Conn, error) {
	if it.Kind != value.KindUserdata {
		return nil, fmt.Errorf("expected websocket handle, found %s", it.Kind)
	}
	conn, ok := it.User.Data.(*websocket.Conn)
	if !ok {
		return nil, fmt.Errorf("userdata is not a websocket handle")
	}
	return conn, nil
}

func wsSend(v *vm.VM) (int, error) {
	msg, err := asString(v, v.Pick(v.Depth()-1))
	if err != nil {
		return 0, rerr.WrapHost(err, "net.ws_send")
	}
	conn, err := wsHandle(v.Pick(v.Depth() - 2))
	if err != nil {
		return 0, rerr.WrapHost(err, "net.ws_send")
	}

	werr := conn.WriteMessage(websocket.TextMessage, []byte(msg))
	for v.Depth() > 0 {
		v.Pop()
	}
	if werr != nil {
		return 0, rerr.WrapHost(werr, "net.ws_send")
	}
	return 0, nil
}

func wsRecv(v *vm.VM) (int, error) {
	conn, err := wsHandle(v.Pick(v.Depth() - 1))
	if err != nil {
		return 0, rerr.WrapHost(err, "net.ws_recv")
	}

	_, msg, rerr2 := conn.ReadMessage()
	for v.Depth() > 0 {
		v.Pop()
	}
	if rerr2 != nil {
		return 0, rerr.WrapHost(rerr2, "net.ws_recv")
	}
	v.Push(value.String(v.Intern(string(msg))))
	return 1, nil
}

func wsClose(v *vm.VM) (int, error) {
	conn, err := wsHandle(v.Pick(v.Depth() - 1))
	if err != nil {
		return 0, rerr.WrapHost(err, "net.ws_close")
	}
	for v.Depth() > 0 {
		v.Pop()
	}
	return 0, conn.Close()
}
