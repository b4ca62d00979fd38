package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hubcast/hubcast/hub"
	"github.com/hubcast/hubcast/proto"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("list_homes",
			mcp.WithDescription("List all homes known to the hub"),
		),
		s.handleListHomes,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_rooms",
			mcp.WithDescription("List rooms in a home"),
			mcp.WithString("home_id",
				mcp.Required(),
				mcp.Description("Home ID"),
			),
		),
		s.handleListRooms,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_accessories",
			mcp.WithDescription("List accessories, optionally scoped to a home or room"),
			mcp.WithString("home_id",
				mcp.Description("Only accessories in this home"),
			),
			mcp.WithString("room_id",
				mcp.Description("Only accessories in this room"),
			),
		),
		s.handleListAccessories,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_accessory",
			mcp.WithDescription("Get full accessory detail including live characteristic values"),
			mcp.WithString("accessory_id",
				mcp.Required(),
				mcp.Description("Accessory ID"),
			),
		),
		s.handleGetAccessory,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_characteristic",
			mcp.WithDescription("Read the current value of one characteristic"),
			mcp.WithString("accessory_id",
				mcp.Required(),
				mcp.Description("Accessory ID"),
			),
			mcp.WithString("characteristic_type",
				mcp.Required(),
				mcp.Description("Characteristic type, e.g. power-state or brightness"),
			),
		),
		s.handleGetCharacteristic,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("set_characteristic",
			mcp.WithDescription("Write a characteristic value (power, brightness, temperature, ...)"),
			mcp.WithString("accessory_id",
				mcp.Required(),
				mcp.Description("Accessory ID"),
			),
			mcp.WithString("characteristic_type",
				mcp.Required(),
				mcp.Description("Characteristic type, e.g. power-state or brightness"),
			),
			mcp.WithString("value",
				mcp.Required(),
				mcp.Description("New value as JSON (true, 42, \"locked\", ...)"),
			),
		),
		s.handleSetCharacteristic,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_scenes",
			mcp.WithDescription("List scenes in a home"),
			mcp.WithString("home_id",
				mcp.Required(),
				mcp.Description("Home ID"),
			),
		),
		s.handleListScenes,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("execute_scene",
			mcp.WithDescription("Execute a scene"),
			mcp.WithString("scene_id",
				mcp.Required(),
				mcp.Description("Scene ID"),
			),
		),
		s.handleExecuteScene,
	)
}

func (s *Server) handleListHomes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	homes, err := s.provider.ListHomes(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list homes: %s", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(homes)), nil
}

func (s *Server) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	homeID, err := request.RequireString("home_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rooms, err := s.provider.ListRooms(ctx, homeID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list rooms: %s", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(rooms)), nil
}

func (s *Server) handleListAccessories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	filter := hub.AccessoryFilter{IncludeValues: true}
	if v, ok := args["home_id"].(string); ok {
		filter.HomeID = v
	}
	if v, ok := args["room_id"].(string); ok {
		filter.RoomID = v
	}
	accessories, err := s.provider.ListAccessories(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list accessories: %s", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(accessories)), nil
}

func (s *Server) handleGetAccessory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accessoryID, err := request.RequireString("accessory_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.provider.RefreshAccessoryValues(ctx, accessoryID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to refresh accessory: %s", err)), nil
	}
	acc, err := s.provider.GetAccessory(ctx, accessoryID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("accessory not found: %s", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(acc)), nil
}

func (s *Server) handleGetCharacteristic(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accessoryID, err := request.RequireString("accessory_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	characteristicType, err := request.RequireString("characteristic_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := s.provider.ReadCharacteristic(ctx, accessoryID, characteristicType)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read characteristic: %s", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]any{
		"accessoryId":        accessoryID,
		"characteristicType": characteristicType,
		"value":              value,
	})), nil
}

func (s *Server) handleSetCharacteristic(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accessoryID, err := request.RequireString("accessory_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	characteristicType, err := request.RequireString("characteristic_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawValue, err := request.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(rawValue), &decoded); err != nil {
		// Not JSON, treat it as a bare string value.
		decoded = rawValue
	}

	result, err := s.provider.SetCharacteristic(ctx, accessoryID, characteristicType, proto.NormalizeValue(decoded))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to set characteristic: %s", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

func (s *Server) handleListScenes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	homeID, err := request.RequireString("home_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	scenes, err := s.provider.ListScenes(ctx, homeID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list scenes: %s", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(scenes)), nil
}

func (s *Server) handleExecuteScene(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sceneID, err := request.RequireString("scene_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.provider.ExecuteScene(ctx, sceneID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to execute scene: %s", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]any{"success": true, "sceneId": sceneID})), nil
}

func formatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("marshal error: %s", err)
	}
	return string(data)
}
