package blocksync

// remote operations known to the engine
const (
	CommandAccountCreate = "accountCreate"
	CommandAccountSelect = "accountSelect"
	CommandAccountStop   = "accountStop"

	CommandBlockOpen   = "blockOpen"
	CommandBlockClose  = "blockClose"
	CommandBlockCreate = "blockCreate"
	CommandBlockUnlink = "blockUnlink"

	CommandBlockListMove               = "blockListMove"
	CommandBlockListDuplicate          = "blockListDuplicate"
	CommandBlockListSetBackgroundColor = "blockListSetBackgroundColor"
	CommandBlockListSetAlign           = "blockListSetAlign"
	CommandBlockListSetTextStyle       = "blockListSetTextStyle"

	CommandBlockSetFields       = "blockSetFields"
	CommandBlockSetDetails      = "blockSetDetails"
	CommandBlockSetTextText     = "blockSetTextText"
	CommandBlockSetTextChecked  = "blockSetTextChecked"
	CommandBlockSetTextColor    = "blockSetTextColor"
	CommandBlockSetLinkTarget   = "blockSetLinkTarget"
	CommandBlockUpload          = "blockUpload"
	CommandBlockBookmarkFetch   = "blockBookmarkFetch"
	CommandBlockSetDataviewView = "blockSetDataviewView"

	CommandProcessCancel = "processCancel"
)

func DefaultCommands() []string {
	return []string{
		CommandAccountCreate,
		CommandAccountSelect,
		CommandAccountStop,
		CommandBlockOpen,
		CommandBlockClose,
		CommandBlockCreate,
		CommandBlockUnlink,
		CommandBlockListMove,
		CommandBlockListDuplicate,
		CommandBlockListSetBackgroundColor,
		CommandBlockListSetAlign,
		CommandBlockListSetTextStyle,
		CommandBlockSetFields,
		CommandBlockSetDetails,
		CommandBlockSetTextText,
		CommandBlockSetTextChecked,
		CommandBlockSetTextColor,
		CommandBlockSetLinkTarget,
		CommandBlockUpload,
		CommandBlockBookmarkFetch,
		CommandBlockSetDataviewView,
		CommandProcessCancel,
	}
}

type BlockPosition int

const (
	BlockPositionNone   BlockPosition = 0
	BlockPositionTop    BlockPosition = 1
	BlockPositionBottom BlockPosition = 2
	BlockPositionLeft   BlockPosition = 3
	BlockPositionRight  BlockPosition = 4
	BlockPositionInner  BlockPosition = 5
	BlockPositionBefore BlockPosition = 6
	BlockPositionAfter  BlockPosition = 7
)

// payload for `blockCreate`. the new block is described in wire form.
func BlockCreatePayload(rootId string, parentId string, targetId string, position BlockPosition, node *Node) Payload {
	return Payload{
		"contextId": rootId,
		"parentId":  parentId,
		"targetId":  targetId,
		"position":  int(position),
		"block":     encodeNode(node),
	}
}

func BlockUnlinkPayload(rootId string, blockIds ...string) Payload {
	return Payload{
		"contextId": rootId,
		"blockIds":  stringsToList(blockIds),
	}
}

func BlockSetTextTextPayload(rootId string, blockId string, text string, marks []Mark) Payload {
	return Payload{
		"contextId": rootId,
		"blockId":   blockId,
		"text":      text,
		"marks":     encodeMarks(marks),
	}
}
