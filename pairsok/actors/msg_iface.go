package actors

// This file contains the ActorMessage interface, and dud bindings

type ActorMessage interface {
	amsg()
}

func (o *CmdGenerateCode) amsg() {}
func (o *CmdEnterCode) amsg()    {}
func (o *CmdPairLocal) amsg()    {}
func (o *CmdConfirm) amsg()      {}
func (o *CmdReject) amsg()       {}
func (o *CmdCancel) amsg()       {}
func (o *CmdGetSession) amsg()   {}
func (o *CmdListSessions) amsg() {}
func (o *CmdTakeConn) amsg()     {}

func (o *TaskDone) amsg()      {}
func (o *InboundPacket) amsg() {}
