package generation

import (
	"fmt"

	"github.com/evalgap/homesim/internal/profile"
)

const contextSystemRole = "당신은 한국어로 시뮬레이션 데이터를 생성합니다. 반드시 JSON만 출력하세요."

func contextPrompt(timeKey, activity string, member profile.MemberProfile, memoryDigest string) string {
	return fmt.Sprintf(`현재 시간은 %s, 가족 구성원 %s(%s, %d세)의 이번 시간 활동은 "%s"입니다.

[최근 기억]
%s

요구 사항:
1) quarterly_activity: 이번 15분 구간에 하고 있을 구체적인 활동을 묘사합니다.
2) location: 현재 있는 방 이름.
3) concrete_action: 구체적인 제약/불편/의도를 포함한 속마음 수준의 행동 설명. 관찰자에게는 공개되지 않습니다.
4) needs_voice_command (true/false):
   - 기본 원칙: 사용자는 편리함을 위해 스마트홈 기기를 자주 사용하는 편입니다.
   - true 조건: (1) 기기 제어(조명, TV, 에어컨 등)나 정보 확인이 상황에 도움이 될 때, (2) 손을 쓰기 어렵거나(요리, 샤워), 움직이기 귀찮거나(침대, 소파), 멀티태스킹이 필요할 때
   - false 조건: (1) 수면 중, 외출 중 등 물리적으로 대화가 불가능할 때, (2) 스마트홈 기기와 전혀 무관한 활동일 때
   - 주의: "손이 바빠서 못 한다"는 false가 아니라 true(음성 명령 필요)여야 합니다.
5) context_command: needs_voice_command가 true일 때, 상황 설명이 담긴 자연스러운 한국어 명령. false면 빈 문자열.
6) 반드시 JSON만 출력합니다.

출력 형식:
{
  "quarterly_activity": "...",
  "location": "...",
  "is_at_home": true,
  "concrete_action": "...",
  "context_command": "...",
  "needs_voice_command": true
}`, timeKey, member.Name, member.Role, member.Age, activity, memoryDigest)
}

const rewriteSystemRole = "당신은 한국어 스마트홈 명령을 편집합니다. 반드시 JSON만 출력하세요."

func rewritePrompt(command, concreteAction string) string {
	return fmt.Sprintf(`[원래 명령]
"%s"

[당시 행동]
%s

위 명령에서 상황 설명이나 이유를 제거하고, 기기 제어 의도만 남긴 간결한 명령으로 바꿔 주세요.
기기와 동작은 그대로 유지해야 합니다. 반드시 JSON만 출력하세요.

출력 형식:
{
  "command": "..."
}`, command, concreteAction)
}
